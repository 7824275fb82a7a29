package infra

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint devolve um identificador curto e estável para uma credencial,
// para que o token nunca apareça em logs ou chaves de estatística.
func Fingerprint(credential string) string {
	return strconv.FormatUint(xxhash.Sum64String(credential), 16)
}
