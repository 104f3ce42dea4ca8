package main

type Config struct {
	DataDir          string `env:"DATA_DIR"`
	BadgerFilepath   string `env:"BADGER_FILEPATH"`
	SecretFile       string `env:"SECRET_FILE"`
	SecretPassphrase string `env:"SECRET_PASSPHRASE"`
	LimitMessages    *int   `env:"LIMIT_MESSAGES"`
	LogLevel         string `env:"LOG_LEVEL,default=info"`
	LogFormat        string `env:"LOG_FORMAT,default=console"`
	ConnectOnStart   bool   `env:"CONNECT_ON_START,default=true"`
}
