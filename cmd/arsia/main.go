// Command arsia は職人向け投稿サービスのAPIサーバー、ワーカー、マイグレーションを起動する。
//
//	arsia [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/arsia/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "arsia: %v\n", err)
		os.Exit(1)
	}
}
