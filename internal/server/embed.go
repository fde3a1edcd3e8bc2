package server

import (
	"embed"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
)

//go:embed all:static
var embedFS embed.FS

// staticFS は静的ファイルのファイルシステムを返す
// dir が空の場合は埋め込みファイルを使う
func staticFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}

	sub, err := fs.Sub(embedFS, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("埋め込み静的ファイルシステムの作成に失敗")
	}
	return sub
}
