// Package generator 生成邮箱本地部分与访问令牌。
package generator

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	tokenBytes     = 32
	localPartBytes = 10
)

var localPartEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generator 从随机源生成令牌和本地部分，不做任何唯一性检查。
type Generator struct {
	src io.Reader
}

// New 使用指定随机源创建生成器，src 为 nil 时使用 crypto/rand。
func New(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}
	return &Generator{src: src}
}

// NewToken 返回 256 位随机令牌（URL 安全的 base64）。
func (g *Generator) NewToken() string {
	return base64.RawURLEncoding.EncodeToString(g.read(tokenBytes))
}

// NewLocalPart 返回 16 位小写 base32 本地部分。
func (g *Generator) NewLocalPart() string {
	return strings.ToLower(localPartEncoding.EncodeToString(g.read(localPartBytes)))
}

func (g *Generator) read(n int) []byte {
	buf := make([]byte, n)
	if _, err := io.ReadFull(g.src, buf); err != nil {
		panic(fmt.Sprintf("generator: read random source: %v", err))
	}
	return buf
}
