// sessionctl - операторская утилита сессий: свертка журнала, бросок, нормализация анкеты, миграции.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
