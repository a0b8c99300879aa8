package registry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BannedWordSource 提供公共域名提交时使用的违禁词列表。
type BannedWordSource interface {
	Words() []string
}

// StaticBannedWords 固定的违禁词列表
type StaticBannedWords []string

// Words 返回违禁词
func (s StaticBannedWords) Words() []string {
	return s
}

// FileBannedWords 从文件加载违禁词，支持定时重新加载。
// 重新加载失败时保留上一次成功的列表。
type FileBannedWords struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	words []string
}

// NewFileBannedWords 创建文件违禁词源，需调用 Reload 完成首次加载。
func NewFileBannedWords(path string, logger *zap.Logger) *FileBannedWords {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileBannedWords{path: path, logger: logger}
}

// Words 返回当前违禁词列表
func (f *FileBannedWords) Words() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.words
}

// Reload 重新读取文件
func (f *FileBannedWords) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read banned words: %w", err)
	}
	words, err := ParseBannedWords(data)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.words = words
	f.mu.Unlock()

	f.logger.Debug("banned words loaded", zap.String("path", f.path), zap.Int("count", len(words)))
	return nil
}

// Run 按间隔重新加载，直到 ctx 结束。
func (f *FileBannedWords) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Reload(); err != nil {
				f.logger.Error("failed to reload banned words, keeping previous list",
					zap.String("path", f.path), zap.Error(err))
			}
		}
	}
}

type bannedWordsDocument struct {
	BannedWords []string `json:"banned_words"`
}

// ParseBannedWords 解析违禁词文件。
//
// 支持两种格式：
//   - "header~<base64(JSON)>"，JSON 形如 {"banned_words": ["..."]}
//   - 每行一个词，忽略空行和以 # 开头的行
func ParseBannedWords(data []byte) ([]string, error) {
	if bytes.Contains(data, []byte("~")) {
		parts := strings.Split(string(data), "~")
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("decode banned words: %w", err)
		}
		var doc bannedWordsDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse banned words: %w", err)
		}
		return normalizeWords(doc.BannedWords), nil
	}

	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan banned words: %w", err)
	}
	return normalizeWords(words), nil
}

func normalizeWords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, w := range in {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
