package registry

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedWords(t *testing.T, json string) []byte {
	t.Helper()
	return []byte("v1~" + base64.StdEncoding.EncodeToString([]byte(json)))
}

func TestParseBannedWords(t *testing.T) {
	t.Run("base64 JSON 格式", func(t *testing.T) {
		words, err := ParseBannedWords(encodedWords(t, `{"banned_words":["Casino"," spam ",""]}`))
		require.NoError(t, err)
		assert.Equal(t, []string{"casino", "spam"}, words)
	})

	t.Run("按行格式", func(t *testing.T) {
		words, err := ParseBannedWords([]byte("# comment\ncasino\n\n  phish \n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"casino", "phish"}, words)
	})

	t.Run("损坏的 base64", func(t *testing.T) {
		_, err := ParseBannedWords([]byte("v1~!!!not-base64"))
		assert.Error(t, err)
	})

	t.Run("损坏的 JSON", func(t *testing.T) {
		_, err := ParseBannedWords(encodedWords(t, `{"banned_words":`))
		assert.Error(t, err)
	})
}

func TestFileBannedWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banned_words.txt")

	t.Run("文件不存在", func(t *testing.T) {
		f := NewFileBannedWords(path, nil)
		assert.Error(t, f.Reload())
		assert.Empty(t, f.Words())
	})

	t.Run("加载成功后损坏保留旧列表", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, encodedWords(t, `{"banned_words":["casino"]}`), 0o600))
		f := NewFileBannedWords(path, nil)
		require.NoError(t, f.Reload())
		assert.Equal(t, []string{"casino"}, f.Words())

		require.NoError(t, os.WriteFile(path, []byte("x~%%%"), 0o600))
		assert.Error(t, f.Reload())
		assert.Equal(t, []string{"casino"}, f.Words())
	})

	t.Run("定时重新加载", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("casino\n"), 0o600))
		f := NewFileBannedWords(path, nil)
		require.NoError(t, f.Reload())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go f.Run(ctx, 10*time.Millisecond)

		require.NoError(t, os.WriteFile(path, []byte("casino\npoker\n"), 0o600))
		assert.Eventually(t, func() bool { return len(f.Words()) == 2 }, time.Second, 10*time.Millisecond)
	})
}
