package token

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	fileVersion = 1
	saltLength  = 16
	keyLength   = 32
	nonceLength = 24
)

var ErrWrongPassphrase = errors.New("token file could not be opened with the given passphrase")

var _ Store = (*FileStore)(nil)

// FileStore keeps the pair in a JSON file readable only by the owner. When a
// passphrase is set the pair is sealed with NaCl secretbox under an argon2id key.
type FileStore struct {
	path       string
	passphrase []byte
	lock       sync.Mutex
}

type fileContents struct {
	Version int    `json:"version"`
	Sealed  bool   `json:"sealed"`
	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh,omitempty"`
	Salt    []byte `json:"salt,omitempty"`
	Nonce   []byte `json:"nonce,omitempty"`
	Box     []byte `json:"box,omitempty"`
}

type sealedPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// NewFileStore returns a store writing to path. An empty passphrase stores the
// pair in clear text.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: []byte(passphrase)}
}

func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Load() (Pair, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Pair{}, ErrNoTokens
		}
		return Pair{}, fmt.Errorf("read token file: %w", err)
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return Pair{}, fmt.Errorf("decode token file: %w", err)
	}
	if contents.Version != fileVersion {
		return Pair{}, fmt.Errorf("unsupported token file version %d", contents.Version)
	}

	if !contents.Sealed {
		if contents.Access == "" {
			return Pair{}, ErrNoTokens
		}
		return NewPair(contents.Access, contents.Refresh), nil
	}

	if len(fs.passphrase) == 0 {
		return Pair{}, ErrWrongPassphrase
	}
	if len(contents.Nonce) != nonceLength {
		return Pair{}, fmt.Errorf("token file nonce is corrupt")
	}
	var nonce [nonceLength]byte
	copy(nonce[:], contents.Nonce)
	key := fs.deriveKey(contents.Salt)

	opened, ok := secretbox.Open(nil, contents.Box, &nonce, key)
	if !ok {
		return Pair{}, ErrWrongPassphrase
	}
	var sp sealedPair
	if err := json.Unmarshal(opened, &sp); err != nil {
		return Pair{}, fmt.Errorf("decode sealed tokens: %w", err)
	}
	return NewPair(sp.Access, sp.Refresh), nil
}

func (fs *FileStore) Save(pair Pair) error {
	if pair.Empty() {
		return fs.Clear()
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()

	contents := fileContents{Version: fileVersion}
	if len(fs.passphrase) == 0 {
		contents.Access = pair.AccessToken
		contents.Refresh = pair.RefreshToken
	} else {
		sealed, err := fs.seal(pair)
		if err != nil {
			return err
		}
		contents = sealed
	}

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	return writeFileAtomic(fs.path, data)
}

func (fs *FileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func (fs *FileStore) seal(pair Pair) (fileContents, error) {
	plain, err := json.Marshal(sealedPair{Access: pair.AccessToken, Refresh: pair.RefreshToken})
	if err != nil {
		return fileContents{}, fmt.Errorf("encode tokens: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return fileContents{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fileContents{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	box := secretbox.Seal(nil, plain, &nonce, fs.deriveKey(salt))
	return fileContents{
		Version: fileVersion,
		Sealed:  true,
		Salt:    salt,
		Nonce:   nonce[:],
		Box:     box,
	}, nil
}

func (fs *FileStore) deriveKey(salt []byte) *[keyLength]byte {
	var key [keyLength]byte
	copy(key[:], argon2.IDKey(fs.passphrase, salt, 1, 64*1024, 4, keyLength))
	return &key
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}
