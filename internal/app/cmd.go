package app

import (
	"errors"
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

// Invocation は解析済みのコマンドライン。
type Invocation struct {
	Command Command
	// Rollback は "migrate down" のときtrue。
	Rollback bool
}

// ErrUnknownCommand はサポート外のサブコマンドが指定されたことを示す。
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand はos.Args[1:]からサブコマンドを解析する。
// 引数なしはserveとして扱う。フラグ風の余分な引数は無視する。
func ParseCommand(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}, nil
	}

	cmd := Command(strings.ToLower(args[0]))
	switch cmd {
	case CommandServe, CommandWorker, CommandHealthcheck:
		return Invocation{Command: cmd}, nil
	case CommandMigrate:
		inv := Invocation{Command: cmd}
		if len(args) > 1 {
			switch args[1] {
			case "up":
			case "down":
				inv.Rollback = true
			default:
				return Invocation{}, fmt.Errorf("%w: migrate %s (want up or down)", ErrUnknownCommand, args[1])
			}
		}
		return inv, nil
	default:
		return Invocation{}, fmt.Errorf("%w: %q (want serve, worker, migrate or healthcheck)", ErrUnknownCommand, args[0])
	}
}
