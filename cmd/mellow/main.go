package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mellowlang/mellow"
)

type args struct {
	tokenize    *bool
	parseOnly   *bool
	typecheck   *bool
	interactive *bool
	noOptimize  *bool
	consentFile *string
}

func readArgs() *args {
	a := &args{
		tokenize:    flag.Bool("tokenize", false, "Print the token stream for the input file and exit"),
		parseOnly:   flag.Bool("parse", false, "Print the parsed AST for the input file and exit"),
		typecheck:   flag.Bool("typecheck", false, "Run the advisory type pass over the input file and exit"),
		interactive: flag.Bool("interactive", false, "Drop into a line-buffered REPL"),
		noOptimize:  flag.Bool("no-optimize", false, "Skip bytecode optimization"),
		consentFile: flag.String("consent-file", "", "Path to a persisted consent decision store"),
	}
	flag.Parse()
	return a
}

func main() {
	a := readArgs()

	if *a.interactive {
		runREPL(a)
		return
	}

	inputPath := flag.Arg(0)
	if inputPath == "" {
		log.Fatal("no input file given")
	}

	source, err := os.ReadFile(inputPath)
	if err != nil {
		log.Fatalf("can't open input file: %s", err.Error())
	}

	if *a.tokenize {
		toks, err := mellow.Tokenize(source)
		if err != nil {
			log.Fatal(err)
		}
		for _, t := range toks {
			fmt.Printf("%d %q\n", t.Kind, t.Literal)
		}
		return
	}

	program, err := mellow.Parse(source)
	if err != nil {
		log.Fatal(err)
	}

	if *a.parseOnly {
		fmt.Printf("%+v\n", program)
		return
	}

	if *a.typecheck {
		tc := mellow.NewTypeChecker()
		diags := tc.Check(program)
		if len(diags) == 0 {
			fmt.Println("no type diagnostics")
			return
		}
		for _, d := range diags {
			fmt.Println(d.Error())
		}
		return
	}

	if err := run(program, a); err != nil {
		log.Fatal(err)
	}
}

func consentPath(a *args) string {
	if *a.consentFile != "" {
		return *a.consentFile
	}
	return mellow.DefaultConsentPath()
}

func run(program *mellow.Program, a *args) error {
	cfg := mellow.NewConfig()
	consent := mellow.NewConsentStore(consentPath(a))
	registry := mellow.NewRegistry(cfg, consent)

	if cfg.OptimizeLevel == 0 || *a.noOptimize {
		interp := mellow.NewInterp(registry, consent)
		_, err := interp.Run(program)
		return err
	}

	compiled, err := mellow.Compile(program)
	if err != nil {
		return err
	}
	mellow.NewOptimizer().Optimize(compiled)

	vm := mellow.NewVM(compiled, cfg, registry)
	_, err = vm.Run()
	return err
}

func runREPL(a *args) {
	cfg := mellow.NewConfig()
	consent := mellow.NewConsentStore(consentPath(a))
	registry := mellow.NewRegistry(cfg, consent)
	interp := mellow.NewInterp(registry, consent)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			fmt.Print("> ")
			continue
		}
		program, err := mellow.Parse([]byte(line))
		if err != nil {
			fmt.Println("ERROR:", err.Error())
			fmt.Print("> ")
			continue
		}
		val, err := interp.Run(program)
		if err != nil {
			fmt.Println("ERROR:", err.Error())
		} else {
			fmt.Println(val)
		}
		fmt.Print("> ")
	}
}
