package media

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Store is the storage seam for image assets: session source images are
// fetched by reference, face crops are stored and a reference returned.
type Store interface {
	// Save stores data under the asset type's directory and returns the
	// reference (relative path) used to fetch it back
	Save(assetType AssetType, filenameHint string, data io.Reader) (string, error)
	// Get retrieves a reader for an asset by reference
	Get(ref string) (io.ReadCloser, os.FileInfo, error)
	// GetBytes reads a whole asset into memory
	GetBytes(ref string) ([]byte, error)
	// Delete removes an asset; missing assets are not an error
	Delete(ref string) error
	// GetFullPath returns the absolute filesystem path for a reference
	GetFullPath(ref string) (string, error)
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath        string               // absolute path to the MEDIA_STORAGE_PATH
	subDirMap       map[AssetType]string // maps AssetType to subdirectory name (e.g., "face_crops")
	resolvedPathMap map[AssetType]string // maps AssetType to full absolute path
}

// NewLocalStorage creates a new local filesystem store
func NewLocalStorage(basePath string, subDirs map[AssetType]string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolvedPaths := make(map[AssetType]string)
	for assetType, subDir := range subDirs {
		fullPath := filepath.Join(absBasePath, subDir)
		if !strings.HasPrefix(filepath.Clean(fullPath), absBasePath) {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		resolvedPaths[assetType] = fullPath
	}

	log.Printf("media.store: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{
		basePath:        absBasePath,
		subDirMap:       subDirs,
		resolvedPathMap: resolvedPaths,
	}, nil
}

// ensureDir creates the directory for the asset type if it doesn't exist
func (ls *LocalStorage) ensureDir(assetType AssetType) (string, error) {
	dirPath, ok := ls.resolvedPathMap[assetType]
	if !ok {
		dirPath = filepath.Join(ls.basePath, string(assetType))
		if !strings.HasPrefix(filepath.Clean(dirPath), ls.basePath) {
			return "", fmt.Errorf("asset type '%s' resolves outside base path", assetType)
		}
		ls.resolvedPathMap[assetType] = dirPath
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dirPath, err)
	}
	return dirPath, nil
}

// Save writes data under the asset type's directory and returns the reference
func (ls *LocalStorage) Save(assetType AssetType, filenameHint string, data io.Reader) (string, error) {
	assetDir, err := ls.ensureDir(assetType)
	if err != nil {
		return "", err
	}

	if filenameHint == "" {
		return "", fmt.Errorf("filename hint cannot be empty for LocalStorage.Save")
	}

	fullSavePath := filepath.Join(assetDir, filenameHint)

	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		return "", fmt.Errorf("internal error calculating reference for '%s': %w", fullSavePath, err)
	}

	return filepath.ToSlash(relativePath), nil
}

func (ls *LocalStorage) Get(ref string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(ref)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", ref, err)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", ref, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", ref, err)
	}

	return file, info, nil
}

// GetBytes reads the whole asset into memory
func (ls *LocalStorage) GetBytes(ref string) ([]byte, error) {
	reader, _, err := ls.Get(ref)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset '%s': %w", ref, err)
	}
	return data, nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(ref string) error {
	fullPath, err := ls.GetFullPath(ref)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete asset '%s': %w", ref, err)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(ref string) (string, error) {
	// clean the relative path first to prevent simple traversal tricks
	cleanRef := filepath.Clean(ref)

	fullPath := filepath.Join(ls.basePath, cleanRef)

	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", ref, err)
	}

	if !strings.HasPrefix(absFullPath, ls.basePath) {
		return "", fmt.Errorf("invalid reference: access denied for '%s'", ref)
	}

	return absFullPath, nil
}
