package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradeexecutor/cmd/executor"
)

var Version string

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "Trade Executor CMD"
	app.Usage = "The trade executor command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		executorCMD,
		versionCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run Executor",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the signal-driven trade executor`,
	}
	versionCMD = cli.Command{
		Name:        "version",
		Usage:       "print the build version",
		Action:      versionAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Print the build version`,
	}
)

func executorAction(_ *cli.Context) error {
	logrus.Info("Starting executor CMD")

	exec := &executor.Executor{}
	if err := exec.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func versionAction(_ *cli.Context) error {
	if Version == "" {
		fmt.Println("dev")
		return nil
	}
	fmt.Println(Version)
	return nil
}
