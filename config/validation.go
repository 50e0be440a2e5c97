package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags first, then the rules that depend on
// which backends are chosen.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateBackends(cfg)
}

func validateBackends(cfg *Config) error {
	switch cfg.Store.Backend {
	case "dir":
		if cfg.Store.Dir == "" {
			return fmt.Errorf("store.dir: required by the dir backend")
		}
	case "s3":
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket: required by the s3 backend")
		}
		if cfg.S3.AccessKey != "" && cfg.S3.SecretKey == "" {
			return fmt.Errorf("s3.secret_key: required with s3.access_key")
		}
	}
	switch cfg.Inode.Backend {
	case "manifest":
		if cfg.Inode.Manifest == "" {
			return fmt.Errorf("inode.manifest: required by the manifest backend")
		}
	case "badger":
		if cfg.Inode.Watch {
			return fmt.Errorf("inode.watch: only the manifest backend can be watched")
		}
	}
	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
