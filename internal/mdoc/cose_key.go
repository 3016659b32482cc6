// Copyright 2026 Dominik Schlosser
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mdoc

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

const (
	coseKeyLabelKty = 1
	p256CoordBytes  = 32
)

var (
	ErrKeyMissingCoordinate = errors.New("COSE key is missing a coordinate")
	ErrKeyWrongType         = errors.New("COSE key has unexpected key type or curve")
	ErrKeyUnexpectedLabel   = errors.New("COSE key has unexpected label")
	ErrKeyInvalidPoint      = errors.New("COSE key coordinates are not on the curve")
)

// CoseKey is an EC2 P-256 public key in COSE_Key form. It carries only kty, crv, x and y.
type CoseKey struct {
	key cose.Key
}

// NewCoseKey converts an ECDSA public key.
func NewCoseKey(pub *ecdsa.PublicKey) (CoseKey, error) {
	if pub == nil {
		return CoseKey{}, ErrKeyWrongType
	}
	ecdhPub, err := pub.ECDH()
	if err != nil {
		return CoseKey{}, fmt.Errorf("%w: %v", ErrKeyWrongType, err)
	}
	return NewCoseKeyFromECDH(ecdhPub)
}

// NewCoseKeyFromECDH converts an ECDH public key.
func NewCoseKeyFromECDH(pub *ecdh.PublicKey) (CoseKey, error) {
	if pub == nil || pub.Curve() != ecdh.P256() {
		return CoseKey{}, ErrKeyWrongType
	}
	raw := pub.Bytes() // 0x04 || X || Y
	key, err := cose.NewKeyEC2(cose.AlgorithmES256, raw[1:1+p256CoordBytes], raw[1+p256CoordBytes:], nil)
	if err != nil {
		return CoseKey{}, fmt.Errorf("%w: %v", ErrKeyWrongType, err)
	}
	// Device and reader keys are encoded without alg.
	key.Algorithm = cose.AlgorithmReserved
	return CoseKey{key: *key}, nil
}

// X returns the x coordinate.
func (k CoseKey) X() []byte {
	_, x, _, _ := k.key.EC2()
	return x
}

// Y returns the y coordinate.
func (k CoseKey) Y() []byte {
	_, _, y, _ := k.key.EC2()
	return y
}

// ECDSA returns the key as a verifying key.
func (k CoseKey) ECDSA() (*ecdsa.PublicKey, error) {
	if _, err := k.ECDH(); err != nil {
		return nil, err
	}
	pub, err := k.key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyWrongType, err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrKeyWrongType
	}
	return ecPub, nil
}

// ECDH returns the key for key agreement. Points not on P-256 are rejected.
func (k CoseKey) ECDH() (*ecdh.PublicKey, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	_, x, y, _ := k.key.EC2()
	raw := make([]byte, 0, 1+2*p256CoordBytes)
	raw = append(raw, 0x04)
	raw = append(raw, x...)
	raw = append(raw, y...)
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyInvalidPoint, err)
	}
	return pub, nil
}

func (k CoseKey) validate() error {
	crv, _, _, _ := k.key.EC2()
	if k.key.Type != cose.KeyTypeEC2 || crv != cose.CurveP256 {
		return fmt.Errorf("%w: kty %d crv %d", ErrKeyWrongType, k.key.Type, crv)
	}
	x, okX := k.key.ParamBytes(cose.KeyLabelEC2X)
	y, okY := k.key.ParamBytes(cose.KeyLabelEC2Y)
	if !okX || !okY || len(x) == 0 || len(y) == 0 {
		return ErrKeyMissingCoordinate
	}
	if len(x) != p256CoordBytes || len(y) != p256CoordBytes {
		return fmt.Errorf("%w: coordinate length %d/%d", ErrKeyInvalidPoint, len(x), len(y))
	}
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (k CoseKey) MarshalCBOR() ([]byte, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	return k.key.MarshalCBOR()
}

// UnmarshalCBOR implements cbor.Unmarshaler. Only the four EC2 labels are accepted.
func (k *CoseKey) UnmarshalCBOR(data []byte) error {
	var labels map[int64]cbor.RawMessage
	if err := cborDecMode.Unmarshal(data, &labels); err != nil {
		return fmt.Errorf("decoding COSE key: %w", err)
	}
	for label := range labels {
		switch label {
		case coseKeyLabelKty, cose.KeyLabelEC2Curve, cose.KeyLabelEC2X, cose.KeyLabelEC2Y:
		default:
			return fmt.Errorf("%w: %d", ErrKeyUnexpectedLabel, label)
		}
	}
	for _, label := range []int64{cose.KeyLabelEC2X, cose.KeyLabelEC2Y} {
		if _, ok := labels[label]; !ok {
			return fmt.Errorf("%w: label %d", ErrKeyMissingCoordinate, label)
		}
	}

	var out CoseKey
	if err := out.key.UnmarshalCBOR(data); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyWrongType, err)
	}
	if err := out.validate(); err != nil {
		return err
	}
	*k = out
	return nil
}
