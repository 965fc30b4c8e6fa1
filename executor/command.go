package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kballard/go-shellquote"
	scheduler "github.com/maferick/hauler_scheduler"
	"github.com/maferick/hauler_scheduler/domain"
	"golang.org/x/sys/unix"
)

const (
	// maxStderr 失败时附加到错误信息中的 stderr 长度
	maxStderr = 400
	// maxLineBytes stdout 单行上限，超出后停止解析并丢弃剩余输出
	maxLineBytes = 1 << 20
	// waitDelay ctx 结束后等待子进程关闭管道的时间
	waitDelay = 5 * time.Second
)

// CommandExecutor 以外部程序执行某类 job。
// job 的参数以 JSON 写入 stdin；stdout 每一行若能解析为进度对象则作为进度上报，否则作为日志。
type CommandExecutor struct {
	jobType string
	argv    []string
}

var _ scheduler.Executor = (*CommandExecutor)(nil)

func NewCommandExecutor(jobType, cmdline string) (*CommandExecutor, error) {
	argv, err := shellquote.Split(cmdline)
	if err != nil {
		return nil, errors.Wrapf(err, "parse command for %s", jobType)
	}
	if len(argv) == 0 {
		return nil, errors.Newf("empty command for %s", jobType)
	}
	return &CommandExecutor{jobType: jobType, argv: argv}, nil
}

func (c *CommandExecutor) Name() string {
	return c.jobType
}

type input struct {
	JobID    int64           `json:"job_id"`
	JobType  string          `json:"job_type"`
	TenantID *int64          `json:"tenant_id,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// progressLine stdout 中的进度行
type progressLine struct {
	Current *int   `json:"current"`
	Total   *int   `json:"total"`
	Label   string `json:"label"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type result struct {
	ExitCode int `json:"exit_code"`
	Lines    int `json:"lines"`
}

func (c *CommandExecutor) Execute(ctx context.Context, job domain.Job, report scheduler.ProgressFunc) (json.RawMessage, error) {
	in, err := json.Marshal(input{
		JobID:    job.ID,
		JobType:  job.JobType,
		TenantID: job.TenantID,
		Params:   job.Payload.Params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode command input")
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	// 独立进程组，取消时连同孙进程一起结束，避免其持有管道
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	cmd.Stdin = bytes.NewReader(in)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "open stdout")
	}
	if err = cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", c.argv[0])
	}

	var (
		last  domain.Progress
		lines int
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++
		var pl progressLine
		if json.Unmarshal([]byte(line), &pl) == nil && pl.isProgress() {
			last = pl.apply(last)
			report(last, pl.Message)
			continue
		}
		report(last, line)
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// 继续读空管道，子进程才能退出
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err = cmd.Wait(); err != nil {
		if msg := tail(stderr.String()); msg != "" {
			return nil, errors.Wrapf(err, "%s exited: %s", c.argv[0], msg)
		}
		return nil, errors.Wrapf(err, "%s exited", c.argv[0])
	}
	if scanErr != nil {
		return nil, errors.Wrap(scanErr, "read command output")
	}

	out, err := json.Marshal(result{ExitCode: 0, Lines: lines})
	if err != nil {
		return nil, errors.Wrap(err, "encode command result")
	}
	return out, nil
}

func (p progressLine) isProgress() bool {
	return p.Current != nil || p.Total != nil || p.Stage != "" || p.Label != "" || p.Message != ""
}

// apply 只覆盖进度行中出现的字段
func (p progressLine) apply(prev domain.Progress) domain.Progress {
	if p.Current != nil {
		prev.Current = *p.Current
	}
	if p.Total != nil {
		prev.Total = *p.Total
	}
	if p.Label != "" {
		prev.Label = p.Label
	}
	if p.Stage != "" {
		prev.Stage = p.Stage
	}
	return prev
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}

// Register 为 executors 配置中的每一项注册 CommandExecutor
func Register(s scheduler.Scheduler, commands map[string]string) error {
	for jobType, cmdline := range commands {
		e, err := NewCommandExecutor(jobType, cmdline)
		if err != nil {
			return err
		}
		if err = scheduler.RegisterExecutor(s, e); err != nil {
			return err
		}
	}
	return nil
}
