// clubcal はクラブ・グループのカレンダー共有サービスのエントリーポイント。
//
// 使い方:
//
//	clubcal [serve|worker|migrate [up|down|version]|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/clubcal/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
