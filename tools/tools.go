//go:build tools
// +build tools

package tools

// mocks/ 下的文件由 mockery 生成，go generate ./service/... 重新生成
import (
	_ "github.com/vektra/mockery/v2"
)
