package content

import (
	"net/url"
	"strings"

	"github.com/hitoshi/citycontent/internal/model"
)

// ValidImageURL は画像URLとして描画可能かを判定する。
// 許可するのは http(s) の絶対URL、data URI、ルート相対パス（"//" 始まりは除く）のみ。
func ValidImageURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, "data:") {
		return true
	}
	if strings.HasPrefix(raw, "/") {
		return !strings.HasPrefix(raw, "//")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SanitizeImage は不正な画像URLを空にしたコピーを返す。
// 壊れた画像を描画層に渡さないため、読み込み時に必ず通す。
func SanitizeImage(item model.ContentItem) model.ContentItem {
	if !ValidImageURL(item.ImageURL) {
		item.ImageURL = ""
	} else {
		item.ImageURL = strings.TrimSpace(item.ImageURL)
	}
	return item
}
