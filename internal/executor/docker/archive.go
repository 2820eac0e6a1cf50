package docker

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// guestUID owns everything we copy into a container. 65534 is "nobody" in
// the Debian and Alpine based Python images.
const guestUID = 65534

// ValidateName rejects names that would escape the working directory or
// address anything but a plain file inside it.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid file name %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("file name %q must not contain path separators", name)
	case path.Base(name) != name:
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

// fileArchive builds a tar stream holding a single regular file. Docker
// extracts it over any existing file of the same name.
func fileArchive(name string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(content)),
		Uid:     guestUID,
		Gid:     guestUID,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// dirArchive builds a tar stream creating the given absolute directories,
// owned by the guest user. It is extracted at "/".
func dirArchive(dirs ...string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, d := range dirs {
		name := strings.TrimPrefix(path.Clean(d), "/")
		if name == "" || name == "." {
			return nil, fmt.Errorf("invalid directory %q", d)
		}
		hdr := &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     name + "/",
			Mode:     0o755,
			Uid:      guestUID,
			Gid:      guestUID,
			ModTime:  time.Now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// errNoFile is returned by readArchivedFile when the archive holds no
// regular file.
var errNoFile = errors.New("archive contains no regular file")

// readArchivedFile returns the first regular file of a tar stream, as
// produced by CopyFromContainer for a single path.
func readArchivedFile(r io.Reader, limit int64) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		return io.ReadAll(io.LimitReader(tr, limit))
	}
}
