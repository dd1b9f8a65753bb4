package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"notekeeper/internal/config"
)

// MySQLDumper shells out to the mysqldump/mysql client tools. Tool
// diagnostics are captured and surfaced verbatim so the operator sees the
// real reason, not a paraphrase.
type MySQLDumper struct {
	dumpBin  string
	mysqlBin string
	cfg      config.MySQLConfig
}

func NewMySQLDumper(cfg *config.Config) *MySQLDumper {
	return &MySQLDumper{
		dumpBin:  cfg.Backup.MySQLDumpBin,
		mysqlBin: cfg.Backup.MySQLBin,
		cfg:      cfg.MySQL,
	}
}

func (d *MySQLDumper) Dump(ctx context.Context, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create dump file failed: %w", err)
	}
	defer out.Close()

	args := append(d.connArgs(),
		"--single-transaction",
		"--skip-lock-tables",
		d.cfg.DB,
		"records",
	)
	cmd := exec.CommandContext(ctx, d.dumpBin, args...)
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// The password travels through the environment, not the process list.
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+d.cfg.Password)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mysqldump failed: %s", toolError(err, &stderr))
	}
	return nil
}

func (d *MySQLDumper) Restore(ctx context.Context, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open restore file failed: %w", err)
	}
	defer in.Close()

	args := append(d.connArgs(), d.cfg.DB)
	cmd := exec.CommandContext(ctx, d.mysqlBin, args...)
	cmd.Stdin = in
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+d.cfg.Password)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mysql restore failed: %s", toolError(err, &stderr))
	}
	return nil
}

func (d *MySQLDumper) connArgs() []string {
	return []string{
		"--host", d.cfg.Host,
		"--port", strconv.Itoa(d.cfg.Port),
		"--user", d.cfg.User,
	}
}

func toolError(err error, stderr *bytes.Buffer) string {
	diag := strings.TrimSpace(stderr.String())
	if diag == "" {
		return err.Error()
	}
	return diag
}
