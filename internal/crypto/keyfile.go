package crypto

import (
	"encoding/json"
	"os"
	"os/user"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/fs"
)

// KeyFile is the on-disk form of a bundle key: the key encrypted with a key
// derived from a password.
type KeyFile struct {
	Created  time.Time `json:"created"`
	Username string    `json:"username"`
	Hostname string    `json:"hostname"`

	KDF  string `json:"kdf"`
	N    int    `json:"N"`
	R    int    `json:"r"`
	P    int    `json:"p"`
	Salt []byte `json:"salt"`
	Data []byte `json:"data"`
}

var (
	// KDFTimeout specifies the maximum runtime for the KDF.
	KDFTimeout = 500 * time.Millisecond

	// KDFMemory limits the memory the KDF is allowed to use.
	KDFMemory = 60
)

// ErrNoKeyFound is returned when the password does not open the key file.
var ErrNoKeyFound = errors.New("wrong password or no key found")

// CreateKey generates a new random bundle key, encrypts it with password and
// stores it at path. A nil params calibrates the KDF first.
func CreateKey(fsys fs.FS, path, password string, params *Params) (*Key, error) {
	if params == nil {
		p, err := Calibrate(KDFTimeout, KDFMemory)
		if err != nil {
			return nil, errors.Wrap(err, "Calibrate")
		}
		params = &p
		log.Debugf("calibrated KDF parameters are %v", p)
	}

	kf := &KeyFile{
		Created: time.Now(),
		KDF:     "scrypt",
		N:       params.N,
		R:       params.R,
		P:       params.P,
	}
	kf.Hostname, _ = os.Hostname()
	if usr, err := user.Current(); err == nil {
		kf.Username = usr.Username
	}

	var err error
	kf.Salt, err = NewSalt()
	if err != nil {
		panic("unable to read enough random bytes for salt: " + err.Error())
	}

	userKey, err := KDF(*params, kf.Salt, password)
	if err != nil {
		return nil, err
	}

	master := NewRandomKey()
	buf, err := json.Marshal(master)
	if err != nil {
		return nil, errors.Wrap(err, "Marshal")
	}
	kf.Data = userKey.Encrypt(buf)

	buf, err = json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "Marshal")
	}

	if err := fs.CreateFileDirectory(fsys, path); err != nil {
		return nil, err
	}
	if err := fs.WriteFile(fsys, path, buf); err != nil {
		return nil, err
	}

	return master, nil
}

// OpenKey reads the key file at path and decrypts the bundle key with
// password.
func OpenKey(fsys fs.FS, path, password string) (*Key, error) {
	buf, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}

	kf := &KeyFile{}
	if err := json.Unmarshal(buf, kf); err != nil {
		return nil, errors.Wrap(err, "Unmarshal")
	}
	if kf.KDF != "scrypt" {
		return nil, errors.Errorf("unknown KDF %q", kf.KDF)
	}

	userKey, err := KDF(Params{N: kf.N, R: kf.R, P: kf.P}, kf.Salt, password)
	if err != nil {
		return nil, err
	}

	buf, err = userKey.Decrypt(kf.Data)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, ErrNoKeyFound
		}
		return nil, err
	}

	master := &Key{}
	if err := json.Unmarshal(buf, master); err != nil {
		return nil, errors.Wrap(err, "Unmarshal")
	}
	if !master.Valid() {
		return nil, errors.New("invalid key in key file")
	}

	return master, nil
}
