package config

import "fmt"

// Merge combines two configs where overlay takes precedence over base:
//   - version: must agree if both declare it
//   - scalars: a non-zero overlay value wins
//   - ipfs headers: deep merge, overlay keys win
func Merge(base, overlay *Config) (*Config, error) {
	if base == nil {
		return overlay, nil
	}
	if overlay == nil {
		return base, nil
	}

	result := *base
	if err := mergeVersion(base.Version, overlay.Version, &result.Version); err != nil {
		return nil, err
	}

	pick(&result.DataDir, overlay.DataDir)
	pick(&result.WriteScheme, overlay.WriteScheme)
	pick(&result.CacheSize, overlay.CacheSize)

	pick(&result.IPFS.APIURL, overlay.IPFS.APIURL)
	pick(&result.IPFS.GatewayURL, overlay.IPFS.GatewayURL)
	pick(&result.IPFS.Timeout, overlay.IPFS.Timeout)
	pick(&result.IPFS.MaxSize, overlay.IPFS.MaxSize)
	result.IPFS.Headers = mergeHeaders(base.IPFS.Headers, overlay.IPFS.Headers)

	pick(&result.S3.Endpoint, overlay.S3.Endpoint)
	pick(&result.S3.Region, overlay.S3.Region)
	pick(&result.S3.AccessKey, overlay.S3.AccessKey)
	pick(&result.S3.SecretKey, overlay.S3.SecretKey)
	pick(&result.S3.Bucket, overlay.S3.Bucket)
	if overlay.S3.UseSSL != nil {
		result.S3.UseSSL = overlay.S3.UseSSL
	}

	pick(&result.Registry.Priority, overlay.Registry.Priority)
	pick(&result.Registry.PostgresDSN, overlay.Registry.PostgresDSN)
	pick(&result.Registry.CacheSize, overlay.Registry.CacheSize)

	pick(&result.Log.Level, overlay.Log.Level)
	pick(&result.Log.Format, overlay.Log.Format)

	return &result, nil
}

// MergeAll merges configs in order, lowest precedence first.
func MergeAll(configs []*Config) (*Config, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no configs to merge")
	}

	result := configs[0]
	for i := 1; i < len(configs); i++ {
		var err error
		result, err = Merge(result, configs[i])
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func pick[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

func mergeVersion(base, overlay int, out *int) error {
	switch {
	case base == 0:
		*out = overlay
	case overlay == 0, base == overlay:
		*out = base
	default:
		return fmt.Errorf("config version mismatch: one layer declares version %d, another declares version %d", base, overlay)
	}
	return nil
}

func mergeHeaders(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	result := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		result[k] = v
	}
	return result
}
