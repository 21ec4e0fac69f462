package main

type config struct {
	API struct {
		Port int `yaml:"port"`
	} `yaml:"api"`
	Store struct {
		Backend  string `yaml:"backend"`
		MySQLDSN string `yaml:"mysqlDsn"`
	} `yaml:"store"`
	Catalog struct {
		BaseURL           string  `yaml:"baseUrl"`
		APIKey            string  `yaml:"apiKey"`
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	} `yaml:"catalog"`
	Session struct {
		Secret string `yaml:"secret"`
	} `yaml:"session"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
	} `yaml:"jaeger"`
}
