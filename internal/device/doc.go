// Package device defines the platform BLE stack contract used by blelink and
// the value types that cross it.
//
// The package provides:
//   - Stack and Link, the interfaces a platform backend implements
//     (see the go-ble and tinygo subpackages)
//   - Peripheral and CharacteristicRef value types
//   - OperationError and the connection-state sentinels every layer wraps
//   - UUID canonicalization and the one-byte-per-character message codec
package device
