package uploader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxFileSize is the largest file accepted for upload
const DefaultMaxFileSize int64 = 100 << 20

// BlockedExtensions are refused before any bytes leave the device
var BlockedExtensions = []string{"exe", "bat", "com", "cmd", "scr", "pif", "vbs", "js"}

// Category groups files for display
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
	CategoryArchive  Category = "archive"
	CategoryCode     Category = "code"
	CategoryOther    Category = "other"
)

var categoryExtensions = map[Category][]string{
	CategoryImage:    {"jpg", "jpeg", "png", "gif", "webp", "svg", "bmp", "ico"},
	CategoryVideo:    {"mp4", "avi", "mkv", "mov", "wmv", "flv", "webm", "3gp"},
	CategoryDocument: {"pdf", "doc", "docx", "txt", "rtf", "odt", "pages"},
	CategoryArchive:  {"zip", "rar", "7z", "tar", "gz", "bz2"},
	CategoryAudio:    {"mp3", "wav", "aac", "ogg", "wma", "flac"},
	CategoryCode:     {"js", "ts", "py", "java", "cpp", "c", "html", "css", "php", "rb", "go", "rs"},
}

// File is an in-memory upload source
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReadFile loads path and sniffs its content type
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &File{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

// Size returns the byte length
func (f *File) Size() int64 {
	return int64(len(f.Data))
}

// Extension returns the lower-case extension without the dot
func (f *File) Extension() string {
	return extension(f.Name)
}

// Category classifies the file by extension, falling back to the content type
func (f *File) Category() Category {
	ext := f.Extension()
	for _, cat := range []Category{CategoryImage, CategoryVideo, CategoryDocument, CategoryArchive, CategoryAudio, CategoryCode} {
		for _, e := range categoryExtensions[cat] {
			if e == ext {
				return cat
			}
		}
	}
	switch {
	case strings.HasPrefix(f.ContentType, "image/"):
		return CategoryImage
	case strings.HasPrefix(f.ContentType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(f.ContentType, "audio/"):
		return CategoryAudio
	}
	return CategoryOther
}

// Hash returns the hex SHA-256 of the file bytes
func (f *File) Hash() string {
	sum := sha256.Sum256(f.Data)
	return hex.EncodeToString(sum[:])
}

// Validate rejects oversized files and blocked extensions
func Validate(f *File, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if f.Size() > maxSize {
		return fmt.Errorf("file size (%s) exceeds maximum allowed size (%s)", FormatSize(f.Size()), FormatSize(maxSize))
	}
	ext := f.Extension()
	for _, blocked := range BlockedExtensions {
		if ext == blocked {
			return fmt.Errorf("file type .%s is not allowed for security reasons", ext)
		}
	}
	return nil
}

// FormatSize renders bytes with a binary unit
func FormatSize(n int64) string {
	if n == 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	return s + " " + units[i]
}

func extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
