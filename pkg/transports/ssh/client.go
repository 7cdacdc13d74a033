package ssh

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/flotilla-run/flotilla/pkg/pool"
)

// Client is a live SSH connection to one host. It satisfies pool.Connection;
// every command runs in a fresh session over the shared TCP connection, so
// concurrent leases against the same client are safe.
type Client struct {
	config *Config
	client *ssh.Client
}

// Run executes a command on the remote host. A non-zero exit status is not an
// error: it is reported through RunOutput.ExitCode and left to the caller to
// judge. Only transport-level failures return an error.
func (c *Client) Run(ctx context.Context, cmd string) (*pool.RunOutput, error) {
	startTime := time.Now()

	log.Debug().
		Str("host", c.config.Host).
		Str("command", cmd).
		Msg("executing command")

	session, err := c.client.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		// Best effort: ask the remote process to stop before giving up on
		// the session.
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		return nil, &TransportError{
			Op:          "execute",
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case execErr = <-doneChan:
	}

	out := &pool.RunOutput{
		Stdout: strings.TrimRight(stdoutBuf.String(), "\n"),
		Stderr: strings.TrimRight(stderrBuf.String(), "\n"),
	}

	log.Debug().
		Str("host", c.config.Host).
		Str("command", cmd).
		Int("stdout_len", len(out.Stdout)).
		Int("stderr_len", len(out.Stderr)).
		Dur("duration", time.Since(startTime)).
		Err(execErr).
		Msg("command completed")

	if execErr != nil {
		if exitErr, ok := execErr.(*ssh.ExitError); ok {
			out.ExitCode = exitErr.ExitStatus()
			return out, nil
		}
		return nil, &TransportError{
			Op:          "execute",
			Err:         execErr,
			IsTemporary: true,
		}
	}

	return out, nil
}

// Upload writes content to remotePath via SFTP, creating parent directories
// as needed and applying mode to the new file.
func (c *Client) Upload(ctx context.Context, remotePath string, content []byte, mode uint32) error {
	log.Debug().
		Str("host", c.config.Host).
		Str("remote", remotePath).
		Int("bytes", len(content)).
		Uint32("mode", mode).
		Msg("uploading file")

	sftpClient, err := newSFTPClient(c.client)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	done := make(chan error, 1)
	go func() {
		done <- uploadBytes(sftpClient, remotePath, content, mode)
	}()

	select {
	case <-ctx.Done():
		return &TransportError{
			Op:          "upload",
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case err := <-done:
		return err
	}
}

// Close tears down the underlying TCP connection.
func (c *Client) Close() error {
	log.Debug().Str("host", c.config.Host).Msg("closing SSH connection")

	if err := c.client.Close(); err != nil {
		return &TransportError{
			Op:  "close",
			Err: err,
		}
	}
	return nil
}

// remoteDir returns the parent directory of a remote path using forward
// slashes regardless of the local OS.
func remoteDir(remotePath string) string {
	return path.Dir(remotePath)
}
