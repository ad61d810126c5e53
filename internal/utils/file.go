package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an extension the decoders understand
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp":
		return true
	}
	return false
}

// OutputName derives a file name stem from an image reference. Local
// references keep their path below namespace with "/" turned into "_",
// remote URLs use the last path element and inline data is "inline".
func OutputName(ref, namespace string) string {
	var name string
	switch {
	case strings.HasPrefix(ref, "data:"):
		name = "inline"
	case namespace != "" && strings.HasPrefix(ref, namespace):
		rel := strings.TrimPrefix(ref, namespace)
		name = strings.ReplaceAll(strings.TrimSuffix(rel, path.Ext(rel)), "/", "_")
	default:
		p := ref
		if u, err := url.Parse(ref); err == nil {
			p = u.Path
		}
		base := path.Base(p)
		name = strings.TrimSuffix(base, path.Ext(base))
	}

	name = SanitizeFilename(name)
	if name == "" || name == "." || name == "_" {
		return "table"
	}
	return name
}

// GenerateOutputFilenames names one output file per reference. Names that
// would collide, ignoring case, get a numeric suffix in reference order.
func GenerateOutputFilenames(refs []string, namespace, outputDir, format string) []string {
	if format == "" {
		format = "csv"
	}
	used := make(map[string]bool, len(refs))
	names := make([]string, len(refs))
	for i, ref := range refs {
		stem := OutputName(ref, namespace)
		name := stem + "." + format
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d.%s", stem, n, format)
		}
		used[strings.ToLower(name)] = true
		names[i] = filepath.Join(outputDir, name)
	}
	return names
}

// ListImageFiles recursively lists all image files in a directory, sorted
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)

	return files, err
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing spaces and dots
	return strings.Trim(result, " .")
}
