package ssh

import (
	"fmt"
	"io/fs"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// newSFTPClient opens an SFTP subsystem session on the shared connection.
func newSFTPClient(client *ssh.Client) (*sftp.Client, error) {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	return sftpClient, nil
}

// uploadBytes writes content to remotePath, creating parent directories and
// applying mode.
func uploadBytes(sftpClient *sftp.Client, remotePath string, content []byte, mode uint32) error {
	dir := remoteDir(remotePath)
	if dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return &TransportError{
				Op:  "upload",
				Err: fmt.Errorf("failed to create remote directory %s: %w", dir, err),
			}
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create remote file: %w", err),
		}
	}

	if _, err := remoteFile.Write(content); err != nil {
		_ = remoteFile.Close()
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to write remote file: %w", err),
			IsTemporary: true,
		}
	}

	if err := remoteFile.Close(); err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to close remote file: %w", err),
		}
	}

	if mode != 0 {
		if err := sftpClient.Chmod(remotePath, fs.FileMode(mode)); err != nil {
			return &TransportError{
				Op:  "upload",
				Err: fmt.Errorf("failed to set remote file mode: %w", err),
			}
		}
	}

	return nil
}
