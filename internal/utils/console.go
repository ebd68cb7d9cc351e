package utils

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console 基于行的终端交互,实现 models.Operator
// 输入由唯一的后台goroutine读取,Ask被取消时已读到的行留给下一次Ask
type Console struct {
	in  *bufio.Reader
	out io.Writer
	mu  sync.Mutex

	once  sync.Once
	lines chan readResult
}

// NewConsole 创建终端交互器
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan readResult),
	}
}

type readResult struct {
	line string
	err  error
}

// readLoop 逐行读取输入直到出错,最后一个结果携带错误
func (c *Console) readLoop() {
	defer close(c.lines)
	for {
		line, err := c.in.ReadString('\n')
		c.lines <- readResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// Ask 打印提示并读取一行
// context取消时立即返回
func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	fmt.Fprint(c.out, prompt)
	c.mu.Unlock()

	c.once.Do(func() { go c.readLoop() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		line := strings.TrimRight(r.line, "\r\n")
		if r.err != nil {
			// 最后一行没有换行符时仍然返回内容
			if r.err == io.EOF && line != "" {
				return line, nil
			}
			return "", r.err
		}
		return line, nil
	}
}

// Say 输出一行信息
func (c *Console) Say(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}
