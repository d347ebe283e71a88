package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/storage"
)

// DefaultCaptureCommand grabs the Raspberry Pi framebuffer.
const DefaultCaptureCommand = "raspi2png -p {file}"

// Capturer runs an external capture command and stores its output.
type Capturer struct {
	command []string
	workDir string
	store   storage.Storage
}

// NewCapturer builds a capturer for command, where "{file}" is replaced by
// the temp file path the command must write a PNG to.
func NewCapturer(command, workDir string, store storage.Storage) (*Capturer, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCaptureCommand
	}
	args := strings.Fields(command)
	if !strings.Contains(command, "{file}") {
		return nil, fmt.Errorf("capture command %q must contain {file}", command)
	}
	if store == nil {
		return nil, errors.New("capture storage is required")
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Capturer{command: args, workDir: workDir, store: store}, nil
}

// Capture takes one screenshot and returns where it was stored.
func (c *Capturer) Capture(ctx context.Context) (string, error) {
	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}
	tmp := filepath.Join(c.workDir, fmt.Sprintf("capture_%d.png", time.Now().UnixNano()))
	defer os.Remove(tmp)

	args := make([]string, len(c.command))
	for i, a := range c.command {
		args[i] = strings.ReplaceAll(a, "{file}", tmp)
	}

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("capture command %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}

	f, err := os.Open(tmp)
	if err != nil {
		return "", fmt.Errorf("capture produced no file: %w", err)
	}
	defer f.Close()

	location, err := c.store.SaveFile(ctx, f, "screenshot.png")
	if err != nil {
		return "", err
	}
	log.Info().Str("location", location).Msg("screenshot captured")
	return location, nil
}
