// Copyright 2025 Dominik Schlosser
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

package trustlist

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/format"
)

// Parse parses a trust list JWT. Entries without service information and certificates that
// do not decode are skipped and logged.
func Parse(raw string, log zerolog.Logger) (*TrustList, error) {
	// TODO: verify the JWS against the scheme operator certificate before trusting the list.
	parts := strings.SplitN(strings.TrimSpace(raw), ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT format: expected 3 parts, got %d", len(parts))
	}

	headerBytes, err := format.DecodeBase64URL(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	payloadBytes, err := format.DecodeBase64URL(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	tl := &TrustList{}
	if err := json.Unmarshal(headerBytes, &tl.Header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	var p payload
	if err := json.Unmarshal(payloadBytes, &p); err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}

	if lsi := p.ListAndSchemeInformation; lsi != nil {
		tl.SchemeInfo = SchemeInfo{
			LoTEType:           lsi.LoTEType,
			SchemeOperatorName: firstValue(lsi.SchemeOperatorName),
			ListIssueDatetime:  lsi.ListIssueDatetime,
		}
	}

	for _, e := range p.TrustedEntitiesList {
		entity := TrustedEntity{Name: firstValue(e.TrustedEntityInformation.TEName)}
		for _, svc := range e.TrustedEntityServices {
			if svc.ServiceInformation == nil {
				log.Debug().Str("entity", entity.Name).Msg("skipping service without ServiceInformation")
				continue
			}
			entity.Services = append(entity.Services, parseService(svc.ServiceInformation, entity.Name, log))
		}
		tl.Entities = append(tl.Entities, entity)
	}
	return tl, nil
}

func parseService(si *serviceJSON, entity string, log zerolog.Logger) TrustedService {
	service := TrustedService{ServiceType: si.ServiceTypeIdentifier}
	for _, c := range si.ServiceDigitalIdentity.X509Certificates {
		der, err := format.DecodeBase64Std(c.Val)
		if err == nil {
			var cert *certificate.Certificate
			if cert, err = certificate.Parse(der); err == nil {
				service.Certificates = append(service.Certificates, cert)
				continue
			}
		}
		log.Warn().Err(err).Str("entity", entity).Msg("skipping undecodable trust list certificate")
	}
	return service
}

// Load reads and parses the trust list JWT at path.
func Load(path string, log zerolog.Logger) (*TrustList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trust list: %w", err)
	}
	tl, err := Parse(string(data), log)
	if err != nil {
		return nil, fmt.Errorf("trust list %s: %w", path, err)
	}
	return tl, nil
}

// TrustAnchors returns the certificates of services of the given types as trust anchors.
// Without service types every listed certificate is returned.
func (tl *TrustList) TrustAnchors(serviceTypes ...string) []*certificate.TrustAnchor {
	wanted := make(map[string]bool, len(serviceTypes))
	for _, st := range serviceTypes {
		wanted[st] = true
	}
	var anchors []*certificate.TrustAnchor
	for _, entity := range tl.Entities {
		for _, svc := range entity.Services {
			if len(wanted) > 0 && !wanted[svc.ServiceType] {
				continue
			}
			for _, cert := range svc.Certificates {
				anchors = append(anchors, certificate.NewTrustAnchor(cert))
			}
		}
	}
	return anchors
}
