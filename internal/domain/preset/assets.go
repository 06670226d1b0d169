package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "hedra-avatar-agent/logger"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrAvatarNotFound = errors.New("avatar image not found")
	ErrNotAnImage     = errors.New("avatar asset is not an image")
)

// AvatarImage 预设形象图片
type AvatarImage struct {
	Name      string
	Data      []byte
	MimeType  string
	Extension string
}

// FileName 上传时使用的文件名
func (a *AvatarImage) FileName() string {
	return "avatar" + a.Extension
}

// AssetStore 按预设名在目录中查找 <name>.png
type AssetStore struct {
	dir string
}

func NewAssetStore(dir string) *AssetStore {
	return &AssetStore{dir: dir}
}

// Load 读取预设形象，找不到时返回 ErrAvatarNotFound
func (s *AssetStore) Load(name string) (*AvatarImage, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: %q", ErrAvatarNotFound, name)
	}

	path := filepath.Join(s.dir, name+".png")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAvatarNotFound, path)
		}
		return nil, fmt.Errorf("读取形象图片 %s 失败: %w", path, err)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAnImage, path, mime.String())
	}

	log.Debugf("加载形象图片 %s, %s, %d bytes", path, mime.String(), len(data))
	return &AvatarImage{
		Name:      name,
		Data:      data,
		MimeType:  mime.String(),
		Extension: mime.Extension(),
	}, nil
}
