// Package jsonfile はローカルJSONファイルの読み書きを提供する。
// スナップショットとローカルストアの両方が使う。
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Load はJSONファイルを読み込んでvにデコードする。
// ファイルが存在しないか空の場合はvを変更せずfalseを返す。
func Load(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// Save はvをJSONにエンコードしてファイル全体を置き換え、書き込んだバイト数を返す。
// indentが真の場合は人が読める形式で出力する。
func Save(path string, v any, indent bool) (int, error) {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", path, err)
	}
	if err := WriteAtomic(path, data); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(data), nil
}

// WriteAtomic は同じディレクトリの一時ファイルに書き込んでからrenameする。
// 途中で失敗しても既存のファイルは壊れない。並行する書き込みは最後のrenameが勝つ。
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Size はファイルサイズを返す。存在しない場合は0。
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
