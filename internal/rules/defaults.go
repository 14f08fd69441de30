package rules

// CORINE land cover classes (1..45) to recreation suitability scores.
const SuitabilityScores = `1:1:0, 2:2:0.1, 3:3:0, 4:4:0, 5:5:0,
6:6:0, 7:7:0, 8:8:0, 9:9:0, 10:10:1,
11:11:0.1, 12:12:0.3, 13:13:0.3, 14:14:0.4, 15:15:0.5,
16:16:0.5, 17:17:0.5, 18:18:0.6, 19:19:0.3, 20:20:0.3,
21:21:0.6, 22:22:0.6, 23:23:1, 24:24:0.8, 25:25:1,
26:26:0.8, 27:27:0.8, 28:28:0.8, 29:29:0.8, 30:30:1,
31:31:0.8, 32:32:0.7, 33:33:0, 34:34:0.8, 35:35:1,
36:36:0.8, 37:37:1, 38:38:0.8, 39:39:1, 40:40:1,
41:41:1, 42:42:1, 43:43:0.8, 44:44:1, 45:45:0.3`

// ProtectedAreaScores maps protected area categories to scores.
const ProtectedAreaScores = "11:11:0,12:12:0.6,2:2:0.8,3:3:0.6,4:4:0.6,5:5:1,6:6:0.8,7:7:0,8:8:0,9:9:0"

// ProximityDistances buckets distances to artificial surfaces and roads (m).
const ProximityDistances = "0:500:1,500.000001:1000:2,1000.000001:5000:3,5000.000001:10000:4,10000.00001:*:5"

// SpectrumDistances buckets distances to the highest spectrum category (m).
const SpectrumDistances = "0:1000:1,1000:2000:2,2000:3000:3,3000:4000:4,4000:*:5"

// Classes of the potential and opportunity components.
const (
	PotentialCategories   = "0.0:0.2:1,0.2:0.4:2,0.4:*:3"
	OpportunityCategories = "0.0:0.2:1,0.2:0.4:2,0.4:*:3"
)

// Distance function coefficients: metric,constant,kappa,alpha[,score].
const (
	WaterCoefficients   = "euclidean,1,30,0.008,1"
	BathingCoefficients = "euclidean,1,5,0.01101"
)

// UrbanAtlasToMAES reclassifies Urban Atlas classes to MAES ecosystem types.
const UrbanAtlasToMAES = `11100 thru 14200 = 1 Urban
21000 thru 22000 = 2 Cropland
23000 = 3 Grassland
24000 thru 25000 = 2 Cropland
31000 = 4 Woodland and forest
32000 = 5 Heathland and shrub
33000 = 6 Sparsely vegetated land
40000 = 7 Wetlands
50000 = 8 Rivers and lakes`

// Category labels.
const (
	PotentialLabels = `1:Low
2:Moderate
3:High`

	OpportunityLabels = `1:Far
2:Midrange
3:Near`

	SpectrumLabels = `1:Low provision (far)
2:Low provision (midrange)
3:Low provision (near)
4:Moderate provision (far)
5:Moderate provision (midrange)
6:Moderate provision (near)
7:High provision (far)
8:High provision (midrange)
9:High provision (near)`

	SpectrumDistanceLabels = `1:0 to 1 km
2:1 to 2 km
3:2 to 3 km
4:3 to 4 km
5:>4 km`
)

// Color tables, in r.colors rules syntax.
const (
	ScoreColors = `0% #a50026
25% #f46d43
50% #ffffbf
75% #a6d96a
100% #006837`

	PotentialColors = `1 #ffffcc
2 #a1dab4
3 #225ea8`

	OpportunityColors = `1 #fef0d9
2 #fdcc8a
3 #d7301f`

	SpectrumColors = `1 #ffffcc
2 #ffeda0
3 #fed976
4 #c7e9b4
5 #7fcdbb
6 #41b6c4
7 #a1d99b
8 #41ab5d
9 #005a32`
)

// Citation of the recreation potential model.
const Citation = "Zulian G., Paracchini M.L., Maes J., Liquete Garcia M.C. (2013). " +
	"ESTIMAP: Ecosystem services mapping at European scale. " +
	"JRC Technical Report EUR 26474 EN. doi:10.2788/64369"
