// Package language maps the language names users write in configuration
// onto the traineddata names tesseract loads.
//
// Users may write ISO 639-1 codes ("en"), ISO 639-2 codes in either the
// bibliographic or terminology form ("fre", "fra"), English words
// ("french") or a tesseract name directly ("chi_sim"). Unknown values pass
// through lowercased so custom traineddata files keep working.
package language
