package prefs

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jhoicas/mercado-local/internal/application/ports"
)

// BoltStore almacén de preferencias sobre un archivo bbolt. Cada dominio es un
// bucket; cada Set es una transacción independiente.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

var _ ports.SessionStore = (*BoltStore)(nil)

// Open abre (o crea) el archivo y el bucket del dominio.
func Open(path, domain string) (*BoltStore, error) {
	if domain == "" {
		return nil, errors.New("prefs: dominio vacío")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		FreelistType: bolt.FreelistArrayType,
		Timeout:      5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("prefs: abrir %s: %w", path, err)
	}
	s := &BoltStore{db: db, bucket: []byte(domain)}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(s.bucket)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: crear bucket %q: %w", domain, err)
	}
	return s, nil
}

// Close libera el archivo.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get implementa ports.SessionStore.
func (s *BoltStore) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("prefs: leer %s: %w", key, err)
	}
	return value, found, nil
}

// Set implementa ports.SessionStore. El valor vacío elimina la clave.
func (s *BoltStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		if value == "" {
			return b.Delete([]byte(key))
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("prefs: escribir %s: %w", key, err)
	}
	return nil
}

// Clear elimina todas las claves del dominio.
func (s *BoltStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("prefs: limpiar: %w", err)
	}
	return nil
}
