package models

// Account represents one provider login with identifier and secret
type Account struct {
	Identifier string `yaml:"identifier"`
	Secret     string `yaml:"secret"`
}
