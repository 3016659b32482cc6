// Copyright 2026 Dominik Schlosser
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qr

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
)

var (
	ErrScreenUnsupported = errors.New("screen capture is not supported on this platform; use --qr with an image file")
	ErrCaptureCancelled  = errors.New("screen capture cancelled")
)

// captureCommand returns the interactive region capture command writing a PNG to out.
func captureCommand(goos, out string, lookPath func(string) (string, error)) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.Command("screencapture", "-i", out), nil
	case "linux":
		if path, err := lookPath("gnome-screenshot"); err == nil {
			return exec.Command(path, "-a", "-f", out), nil
		}
		if path, err := lookPath("import"); err == nil {
			return exec.Command(path, out), nil
		}
	}
	return nil, ErrScreenUnsupported
}

// ScanScreenEngagement lets the user select a screen region holding a reader's QR code
// and decodes the engagement from it.
func ScanScreenEngagement() (*mdoc.Engagement, error) {
	tmpDir, err := os.MkdirTemp("", "mdoc-holder-qr-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	out := filepath.Join(tmpDir, "capture.png")
	cmd, err := captureCommand(runtime.GOOS, out, exec.LookPath)
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if runtime.GOOS == "darwin" && strings.Contains(msg, "cannot capture") {
			return nil, fmt.Errorf("screen recording permission denied; grant it to your terminal in System Settings")
		}
		return nil, fmt.Errorf("%s failed: %s", filepath.Base(cmd.Path), msg)
	}

	// Escape leaves no file behind.
	if _, err := os.Stat(out); err != nil {
		return nil, ErrCaptureCancelled
	}
	text, err := ScanFile(out)
	if err != nil {
		return nil, err
	}
	return engagementFromText(text)
}
