package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Yulian302/lfusys-services-uploads/apperror"
	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/Yulian302/lfusys-services-uploads/uploader"
	"github.com/urfave/cli"
)

type consoleObserver struct {
	last int
}

func (o *consoleObserver) OnProgress(p int) {
	if p == uploader.ProgressUnset || p == o.last {
		return
	}
	o.last = p
	fmt.Fprintf(os.Stderr, "\r%3d%%", p)
}

func (o *consoleObserver) OnStatus(s uploader.Status, msg string) {
	if s == uploader.StatusSucceeded || s == uploader.StatusFailed {
		fmt.Fprintln(os.Stderr)
	}
	fmt.Fprintln(os.Stderr, msg)
}

func newClient(c *cli.Context) *uploader.Client {
	return uploader.NewClient(c.GlobalString("api"), nil)
}

func uploadCommand() cli.Command {
	return cli.Command{
		Name:      "upload",
		Usage:     "upload a file in 5 MiB chunks",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			cli.DurationFlag{
				Name:  "backoff-step",
				Usage: "wait step between chunk retries, multiplied by the attempt number",
				Value: uploader.DefaultBackoffStep,
			},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.NewExitError("missing <file> argument", 2)
			}

			file, fh, err := uploader.OpenFile(path)
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			defer fh.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := newClient(c)
			l := logger.NewSlogLogger(logger.CreateLoggerTo(c.GlobalString("env"), os.Stderr))
			coord := uploader.NewCoordinator(client, client,
				uploader.WithObserver(&consoleObserver{last: uploader.ProgressUnset}),
				uploader.WithBackoffStep(c.Duration("backoff-step")),
				uploader.WithLogger(l),
			)

			coord.SelectFile(file)
			url, err := coord.BeginUpload(ctx, file)
			if err != nil {
				if errors.Is(err, apperror.ErrUploadInProgress) {
					return cli.NewExitError(err.Error(), 1)
				}
				return cli.NewExitError(apperror.MsgUploadFailed, 1)
			}
			fmt.Println(url)
			return nil
		},
	}
}

func listCommand() cli.Command {
	return cli.Command{
		Name:  "list",
		Usage: "list uploaded files, newest first",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			files, err := newClient(c).ListFiles(ctx)
			if err != nil {
				return cli.NewExitError(apperror.MsgFetchFailed, 1)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tUPLOADED\tURL")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", f.Name, f.Size, f.UploadDate.Local().Format(time.RFC3339), f.DownloadURL)
			}
			return w.Flush()
		},
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "uploader"
	app.Usage = "chunked multipart upload client"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "api",
			Usage:  "uploads API base url",
			Value:  "http://localhost:8080",
			EnvVar: "UPLOADER_API_URL",
		},
		cli.StringFlag{
			Name:   "env",
			Usage:  "log format: production for json, anything else for text",
			Value:  "development",
			EnvVar: "ENV",
		},
	}
	app.Commands = []cli.Command{
		uploadCommand(),
		listCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
