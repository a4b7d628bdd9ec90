package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ylisp-lang/ylisp"
)

type args struct {
	programPath *string
	configPath  *string
	interactive *bool
	dumpPool    *bool
}

func readArgs() *args {
	a := &args{
		programPath: flag.String("program", "", "Path to a YLISP source file"),
		configPath:  flag.String("config", "", "Path to a YAML runtime configuration file"),
		interactive: flag.Bool("interactive", false, "Drop into a REPL after (or instead of) running -program"),
		dumpPool:    flag.Bool("dump-pool", false, "Print pool occupancy stats on exit"),
	}
	flag.Parse()
	return a
}

func main() {
	a := readArgs()

	cfg := ylisp.NewConfig()
	if *a.configPath != "" {
		loaded, err := ylisp.LoadConfigFile(*a.configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	rt, err := ylisp.NewRuntime(cfg, ylisp.NewStdLogger())
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if *a.dumpPool {
			rt.Pool.LogStat()
		}
		if err := rt.Deinit(); err != nil {
			log.Printf("ylisp: deinit: %s", err)
		}
	}()

	if *a.programPath != "" {
		src, err := os.ReadFile(*a.programPath)
		if err != nil {
			log.Fatalf("can't open program: %s", err)
		}
		res := rt.Interpret(src)
		if res.Err != nil {
			fmt.Println("ERROR: " + res.Err.Error())
			if !*a.interactive {
				os.Exit(1)
			}
		} else {
			fmt.Println(res.Printed)
		}
	}

	if *a.interactive || *a.programPath == "" {
		repl(rt)
	}
}

func repl(rt *ylisp.Runtime) {
	stdin := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("ylisp> ")
		text, err := stdin.ReadString('\n')
		if text == "" && err != nil {
			fmt.Println("")
			return
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		res := rt.Interpret([]byte(text))
		if res.Err != nil {
			fmt.Println("ERROR: " + res.Err.Error())
			continue
		}
		fmt.Println(res.Printed)
	}
}
