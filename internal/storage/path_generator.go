package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

const maxNameLen = 100

var (
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]`)
	spaceRun     = regexp.MustCompile(`\s+`)
	dotRun       = regexp.MustCompile(`\.{2,}`)
	safeID       = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// PathGenerator 路径生成器: 每种文件类型一个目录
type PathGenerator struct {
	baseDir string
	dirs    map[models.FileType]string
}

// NewPathGenerator 创建路径生成器
func NewPathGenerator(cfg *config.StorageConfig) *PathGenerator {
	base := filepath.Clean(cfg.BaseDir)
	return &PathGenerator{
		baseDir: base,
		dirs: map[models.FileType]string{
			models.FileTypeVideo:     filepath.Join(base, "videos"),
			models.FileTypeBGM:       filepath.Join(base, "bgm"),
			models.FileTypeThumbnail: filepath.Join(base, "thumbnails"),
			models.FileTypeText:      filepath.Join(base, "texts"),
		},
	}
}

// BaseDir 临时目录根路径
func (g *PathGenerator) BaseDir() string {
	return g.baseDir
}

// Dir 文件类型对应的目录
func (g *PathGenerator) Dir(ft models.FileType) string {
	if d, ok := g.dirs[ft]; ok {
		return d
	}
	return g.dirs[models.FileTypeVideo]
}

// EnsureDirs 确保所有目录存在
func (g *PathGenerator) EnsureDirs() error {
	for _, d := range g.dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return nil
}

// Name 临时文件名(不含扩展名): {tag}-{contentID}-{请求标识}
// 每次调用生成新的请求标识, 同一内容的并发请求互不覆盖
// 内容ID缺失或含不安全字符时改用随机标识加时间戳
func (g *PathGenerator) Name(tag, contentID string) string {
	tag = SanitizeFilename(tag)
	if tag == "" {
		tag = string(models.PlatformUnsupported)
	}
	if !safeID.MatchString(contentID) {
		return tag + "-" + OpaqueID()
	}
	return tag + "-" + contentID + "-" + shortID()
}

// Path 完整路径: {dir}/{name}.{ext}
func (g *PathGenerator) Path(ft models.FileType, name, ext string) string {
	return filepath.Join(g.Dir(ft), name+"."+normalizeExt(ext))
}

// Contains 校验路径位于文件类型目录内, 返回清理后的路径
func (g *PathGenerator) Contains(ft models.FileType, path string) (string, error) {
	if path == "" {
		return "", utils.ErrOutsideStore
	}
	clean, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", utils.ErrOutsideStore
	}
	dir, err := filepath.Abs(g.Dir(ft))
	if err != nil {
		return "", utils.ErrOutsideStore
	}
	rel, err := filepath.Rel(dir, clean)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", utils.ErrOutsideStore, path)
	}
	return clean, nil
}

// OpaqueID 随机标识加时间戳
func OpaqueID() string {
	return fmt.Sprintf("%s-%d", hexID()[:12], time.Now().Unix())
}

func shortID() string {
	return hexID()[:8]
}

func hexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DownloadFilename 客户端下载时的建议文件名: {tag}-{标题}.{ext}
func DownloadFilename(tag, title, fallback, ext string) string {
	name := SanitizeFilename(title)
	if name == "" {
		name = SanitizeFilename(fallback)
	}
	if name == "" {
		name = "video"
	}
	if tag = SanitizeFilename(tag); tag != "" {
		name = tag + "-" + name
	}
	return truncateRunes(name, maxNameLen) + "." + normalizeExt(ext)
}

// SanitizeFilename 清理文件名: 非法字符替换为下划线, 合并空白与连续的点, 去除首尾点和空格, 最长100字符
func SanitizeFilename(name string) string {
	if name == "" {
		return ""
	}
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "_")
	}

	clean := illegalChars.ReplaceAllString(name, "_")
	clean = spaceRun.ReplaceAllString(clean, " ")
	clean = dotRun.ReplaceAllString(clean, ".")
	clean = strings.Trim(clean, ". ")
	clean = truncateRunes(clean, maxNameLen)
	return strings.Trim(clean, ". ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" || illegalChars.MatchString(ext) || len(ext) > 8 {
		return "mp4"
	}
	return ext
}
