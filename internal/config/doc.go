// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// so secrets (tokens, client secrets, database passwords) can stay out of the file.
// See configs/client.example.yaml for a complete annotated example.
package config
