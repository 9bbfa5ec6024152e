//go:build !unix

package transcode

import "os/exec"

func configureProcessGroup(*exec.Cmd) {}
