package main

import (
	"flag"
	"io"

	"github.com/collectivat/mic2etherpad/internal/config"
)

type cliOptions struct {
	configPath  string
	envFile     string
	showVersion bool
	listDevices bool

	outputPath    string
	modelPath     string
	device        string
	sampleRate    int
	language      string
	translateLang string
	token         string
	padURL        string
	apiKey        string
	padID         string
	shortcuts     string

	set map[string]bool
}

// parseFlags accepts both the short and long spelling of every option.
func parseFlags(args []string, output io.Writer) (*cliOptions, error) {
	o := &cliOptions{set: map[string]bool{}}
	fs := flag.NewFlagSet("mic2ether", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.configPath, "config", "", "Path to YAML configuration file")
	fs.StringVar(&o.envFile, "env", ".env", "Dotenv file with MIC2ETHER_* overrides")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	boolVar(fs, &o.listDevices, "a", "list-audio-devices", "List audio devices and exit")
	stringVar(fs, &o.outputPath, "x", "outtxt", "Write flushed paragraphs to this text file")
	stringVar(fs, &o.modelPath, "m", "model", "Path to the Vosk model directory")
	stringVar(fs, &o.device, "d", "device", "Input device (numeric index or name substring)")
	intVar(fs, &o.sampleRate, "r", "samplerate", "Sampling rate")
	stringVar(fs, &o.language, "l", "language", "Source language code")
	stringVar(fs, &o.translateLang, "f", "translatelang", "Translation language code")
	stringVar(fs, &o.token, "t", "token", "Punctuation service token")
	stringVar(fs, &o.padURL, "u", "url", "Etherpad base URL")
	stringVar(fs, &o.apiKey, "k", "apikey", "Etherpad API key")
	stringVar(fs, &o.padID, "p", "padid", "Etherpad pad id")
	stringVar(fs, &o.shortcuts, "s", "shortcuts", "Shortcuts JSON file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[canonical[f.Name]] = true })
	return o, nil
}

// canonical maps every flag spelling to its long name.
var canonical = map[string]string{"config": "config", "env": "env", "version": "version"}

func stringVar(fs *flag.FlagSet, p *string, short, long, usage string) {
	fs.StringVar(p, short, "", usage)
	fs.StringVar(p, long, "", usage)
	canonical[short], canonical[long] = long, long
}

func intVar(fs *flag.FlagSet, p *int, short, long, usage string) {
	fs.IntVar(p, short, 0, usage)
	fs.IntVar(p, long, 0, usage)
	canonical[short], canonical[long] = long, long
}

func boolVar(fs *flag.FlagSet, p *bool, short, long, usage string) {
	fs.BoolVar(p, short, false, usage)
	fs.BoolVar(p, long, false, usage)
	canonical[short], canonical[long] = long, long
}

// apply overlays the flags given on the command line onto cfg.
func (o *cliOptions) apply(cfg *config.Config) {
	if o.set["outtxt"] {
		cfg.Dictation.OutputPath = o.outputPath
	}
	if o.set["model"] {
		cfg.STT.ModelPath = o.modelPath
	}
	if o.set["device"] {
		cfg.Audio.Device = o.device
	}
	if o.set["samplerate"] {
		cfg.Audio.SampleRate = o.sampleRate
	}
	if o.set["language"] {
		cfg.STT.Language = o.language
	}
	if o.set["translatelang"] {
		cfg.Translation.TargetLanguage = o.translateLang
	}
	if o.set["token"] {
		cfg.Punctuation.Token = o.token
	}
	if o.set["url"] {
		cfg.Etherpad.URL = o.padURL
	}
	if o.set["apikey"] {
		cfg.Etherpad.APIKey = o.apiKey
	}
	if o.set["padid"] {
		cfg.Etherpad.PadID = o.padID
	}
	if o.set["shortcuts"] {
		cfg.Dictation.ShortcutsPath = o.shortcuts
	}
}
