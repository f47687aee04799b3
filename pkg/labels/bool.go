package labels

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, errors.Errorf("invalid boolean %s", strconv.Quote(v))
}
