package device

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChunkSize is the largest slice of a file sent in one upload request.
const ChunkSize = 1 << 20

const uploadRequestTimeout = 60 * time.Second

var ErrUploadRejected = errors.New("device rejected upload chunk")

// Uploader sends files to the printer's HTTP upload endpoint in sequential
// chunks sharing one upload session id, total size and MD5 checksum.
type Uploader struct {
	endpoint  string
	client    *http.Client
	chunkSize int64
	logger    zerolog.Logger
}

func NewUploader(addr string, logger zerolog.Logger) *Uploader {
	return &Uploader{
		endpoint:  "http://" + addr + "/uploadFile/upload",
		client:    &http.Client{Timeout: uploadRequestTimeout},
		chunkSize: ChunkSize,
		logger:    logger,
	}
}

type uploadResponse struct {
	Success bool `json:"success"`
}

// Upload sends the file at path to the device under name. Any chunk the
// device does not acknowledge with success aborts the upload.
func (u *Uploader) Upload(ctx context.Context, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	total := info.Size()

	hasher := md5.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return err
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))
	session := strings.ReplaceAll(uuid.NewString(), "-", "")

	for offset := int64(0); offset < total; offset += u.chunkSize {
		size := u.chunkSize
		if remaining := total - offset; remaining < size {
			size = remaining
		}

		chunk := io.NewSectionReader(f, offset, size)
		if err = u.sendChunk(ctx, chunk, name, session, checksum, total, offset); err != nil {
			return fmt.Errorf("chunk at offset %d: %w", offset, err)
		}

		u.logger.Debug().
			Str("file", name).
			Int64("offset", offset).
			Int64("total", total).
			Msg("chunk uploaded")
	}

	return nil
}

func (u *Uploader) sendChunk(ctx context.Context, chunk io.Reader, name, session, checksum string, total, offset int64) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := [][2]string{
		{"TotalSize", strconv.FormatInt(total, 10)},
		{"Uuid", session},
		{"Offset", strconv.FormatInt(offset, 10)},
		{"Check", "1"},
		{"S-File-MD5", checksum},
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return err
		}
	}

	part, err := form.CreateFormFile("File", name)
	if err != nil {
		return err
	}
	if _, err = io.Copy(part, chunk); err != nil {
		return err
	}
	if err = form.Close(); err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", form.FormDataContentType())

	response, err := u.client.Do(request)
	if err != nil {
		return err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if err != nil {
		return err
	}

	var parsed uploadResponse
	if err = json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%w: status %d: %s", ErrUploadRejected, response.StatusCode, strings.TrimSpace(string(raw)))
	}

	if !parsed.Success {
		return fmt.Errorf("%w: %s", ErrUploadRejected, strings.TrimSpace(string(raw)))
	}

	return nil
}
