// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// EncodeJSONFile 编码 JSON 文件，用制表符缩进
func EncodeJSONFile(path string, obj interface{}) error {
	body, err := json.MarshalIndent(obj, "", "\t")
	if err != nil {
		return errors.Wrap(err, "encode json")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err = f.Write(append(body, '\n')); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
