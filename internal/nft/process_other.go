//go:build !linux

package nft

import "os/exec"

func configureProcAttr(cmd *exec.Cmd) {}
