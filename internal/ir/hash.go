package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Domain prefixes for stored checksums.
// Version suffix enables future algorithm migration.
const (
	DomainTx = "factdb/tx/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TxChecksum computes the checksum recorded with every stored transaction.
// The payload is the canonical text of the transaction's datoms; the tx id
// is mixed in so that a payload moved to another transaction fails
// verification.
func TxChecksum(txID int64, payload []byte) string {
	buf := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(txID))
	buf = append(buf, payload...)
	return hashWithDomain(DomainTx, buf)
}

// VerifyTxChecksum reports whether sum matches the payload of txID.
func VerifyTxChecksum(txID int64, payload []byte, sum string) bool {
	return TxChecksum(txID, payload) == sum
}
