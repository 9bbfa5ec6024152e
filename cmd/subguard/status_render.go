package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type checkKind int

const (
	checkInfo checkKind = iota
	checkOK
	checkWarn
	checkError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

const checkLabelWidth = 18

var checkLabels = map[checkKind]string{
	checkInfo:  "INFO",
	checkOK:    "OK",
	checkWarn:  "WARN",
	checkError: "ERROR",
}

var checkColors = map[checkKind]string{
	checkInfo:  ansiCyan,
	checkOK:    ansiGreen,
	checkWarn:  ansiYellow,
	checkError: ansiRed,
}

// checkLine formats one doctor result as "  label: [KIND] detail".
func checkLine(label string, kind checkKind, detail string, colorize bool) string {
	tag := "[" + checkLabels[kind] + "]"
	if detail != "" {
		tag += " " + detail
	}
	line := fmt.Sprintf("  %-*s %s", checkLabelWidth, label+":", tag)
	if colorize {
		return checkColors[kind] + line + ansiReset
	}
	return line
}

func sectionHeader(title string, colorize bool) string {
	title = "== " + strings.TrimSpace(title) + " =="
	if colorize {
		return ansiCyan + title + ansiReset
	}
	return title
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
