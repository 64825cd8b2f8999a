package leboncoin

import (
	"context"

	"carscout/models"
)

// SampleProvider serves a fixed set of French car ads. It backs the test-fetch
// endpoint and the fallback path when a live run yields nothing, so the rest
// of the pipeline can be exercised without touching the marketplace.
type SampleProvider struct {
	department string
}

// NewSampleProvider creates a provider serving deterministic sample ads.
func NewSampleProvider(department string) *SampleProvider {
	return &SampleProvider{department: department}
}

// FetchPage returns every sample ad on the first page and nothing afterwards.
func (p *SampleProvider) FetchPage(_ context.Context, offset int) ([]models.RawAd, error) {
	if offset > 0 {
		return nil, nil
	}
	ads := make([]models.RawAd, len(sampleAds))
	copy(ads, sampleAds)
	return ads, nil
}

var sampleAds = []models.RawAd{
	{
		ListID:  "sample-0001",
		Subject: "Renault Clio IV 1.5 dCi 90 Business",
		Body: "Véhicule en excellent état, entretien suivi en concession Renault. " +
			"Non fumeur, toujours garé au garage. Révision faite à 60000 km. " +
			"Climatisation, GPS, Bluetooth. Contrôle technique OK jusqu'en 2025.",
		Price: []int{12500},
		Attributes: map[string]string{
			"regdate": "2018",
			"mileage": "65000",
			"fuel":    "diesel",
		},
		ImageURLs: []string{
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample1.jpg",
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample2.jpg",
		},
		URL:       "https://www.leboncoin.fr/sample1",
		OwnerType: "particulier",
	},
	{
		ListID:  "sample-0002",
		Subject: "Peugeot 208 1.2 PureTech 82 Allure",
		Body: "Première main, carnet d'entretien complet. Garantie constructeur " +
			"jusqu'en 2024. Jantes alliage, régulateur de vitesse, caméra de recul. Parfait état.",
		Price: []int{15800},
		Attributes: map[string]string{
			"regdate": "2019",
			"mileage": "42000",
			"fuel":    "essence",
		},
		ImageURLs: []string{
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample3.jpg",
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample4.jpg",
		},
		URL:       "https://www.leboncoin.fr/sample2",
		OwnerType: "professionnel",
	},
	{
		ListID:  "sample-0003",
		Subject: "BMW Série 3 320d xDrive 190ch M Sport",
		Body: "BMW Série 3 en très bon état. Pack M Sport complet, cuir, navigation " +
			"professional, xDrive (4 roues motrices). Entretien BMW, jamais accidenté. " +
			"Urgent déménagement.",
		Price: []int{28900},
		Attributes: map[string]string{
			"regdate": "2017",
			"mileage": "89000",
			"fuel":    "diesel",
		},
		ImageURLs: []string{
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample5.jpg",
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample6.jpg",
		},
		URL:       "https://www.leboncoin.fr/sample3",
		OwnerType: "particulier",
	},
	{
		ListID:  "sample-0004",
		Subject: "Citroën C3 1.2 PureTech 82 Feel",
		Body: "Citroën C3 récente, climatisation automatique, écran tactile 7 pouces, " +
			"radar de recul. Entretien Citroën suivi, factures disponibles.",
		Price: []int{11200},
		Attributes: map[string]string{
			"regdate": "2018",
			"mileage": "78000",
			"fuel":    "essence",
		},
		ImageURLs: []string{
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample7.jpg",
		},
		URL:       "https://www.leboncoin.fr/sample4",
		OwnerType: "professionnel",
	},
	{
		ListID:  "sample-0005",
		Subject: "Volkswagen Golf VII 1.6 TDI 110 Confortline",
		Body: "Golf 7 diesel économique, très fiable. Boîte manuelle 5 vitesses, " +
			"climatisation, ordinateur de bord. Pneus récents, distribution faite.",
		Price: []int{17500},
		Attributes: map[string]string{
			"regdate": "2016",
			"mileage": "95000",
			"fuel":    "diesel",
		},
		ImageURLs: []string{
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample8.jpg",
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample9.jpg",
		},
		URL:       "https://www.leboncoin.fr/sample5",
		OwnerType: "particulier",
	},
	{
		ListID:  "sample-0006",
		Subject: "Mercedes Classe A 180d Business Edition",
		Body: "Mercedes Classe A récente, Business Edition avec GPS, LED, caméra de " +
			"recul. Garantie Mercedes jusqu'en 2025. État impeccable, première main.",
		Price: []int{22900},
		Attributes: map[string]string{
			"regdate": "2019",
			"mileage": "56000",
			"fuel":    "diesel",
		},
		ImageURLs: []string{
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample10.jpg",
			"https://images.leboncoin.fr/api/v1/lbcpb1/images/sample11.jpg",
		},
		URL:       "https://www.leboncoin.fr/sample6",
		OwnerType: "professionnel",
	},
}
