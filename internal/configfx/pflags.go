package configfx

import (
	"os"

	"github.com/spf13/pflag"
)

func PFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)

	// Config file flag
	fs.StringP("config", "c", "", "Config file")

	fs.String("log.level", "", "Log level (debug, info, warn, error)")
	fs.String("staging.root", "", "Local staging directory")
	fs.String("upload.remote_root", "", "Remote root, e.g. an rclone remote such as \"s3:backups\"")

	_ = fs.Parse(os.Args[1:])

	return fs
}
