package integrate

import "math"

const (
	dblEpsilon = 2.2204460492503131e-16
	dblMin     = 2.2250738585072014e-308
)

// kronrodRule is a Gauss-Kronrod pair in QUADPACK layout: xgk holds the
// non-negative Kronrod abscissae in decreasing order ending with the centre,
// Gauss nodes sit at the odd indices of xgk.
type kronrodRule struct {
	xgk []float64
	wg  []float64
	wgk []float64
}

// gk21 is the 10-point Gauss, 21-point Kronrod rule.
var gk21 = kronrodRule{
	xgk: []float64{
		0.995657163025808080735527280689003,
		0.973906528517171720077964012084452,
		0.930157491355708226001207180059508,
		0.865063366688984510732096688423493,
		0.780817726586416897063717578345042,
		0.679409568299024406234327365114874,
		0.562757134668604683339000099272694,
		0.433395394129247190799265943165784,
		0.294392862701460198131126603103866,
		0.148874338981631210884826001129720,
		0,
	},
	wg: []float64{
		0.066671344308688137593568809893332,
		0.149451349150580593145776339657697,
		0.219086362515982043995534934228163,
		0.269266719309996355091226921569469,
		0.295524224714752870173892994651338,
	},
	wgk: []float64{
		0.011694638867371874278064396062192,
		0.032558162307964727478818972459390,
		0.054755896574351996031381300244580,
		0.075039674810919952767043140916190,
		0.093125454583697605535065465083366,
		0.109387158802297641899210590325805,
		0.123491976262065851077600525478613,
		0.134709217311473325928054001771707,
		0.142775938577060080797094273138717,
		0.147739104901338491374841515972068,
		0.149445554002916905664936468389821,
	},
}

// gk15 is the 7-point Gauss, 15-point Kronrod rule used on transformed
// infinite ranges.
var gk15 = kronrodRule{
	xgk: []float64{
		0.991455371120812639206854697526329,
		0.949107912342758524526189684047851,
		0.864864423359769072789712788640926,
		0.741531185599394439863864773280788,
		0.586087235467691130294144845693013,
		0.405845151377397166906606412076961,
		0.207784955007898467600689403773245,
		0,
	},
	wg: []float64{
		0.129484966168869693270611432679082,
		0.279705391489276667901467771423780,
		0.381830050505118944950369775488975,
		0.417959183673469387755102040816327,
	},
	wgk: []float64{
		0.022935322010529224963732008058970,
		0.063092092629978553290700663189204,
		0.104790010322250183839876322541518,
		0.140653259715525918745189590510238,
		0.169004726639267902826583426598550,
		0.190350578064785409913256402421014,
		0.204432940075298892414161999234649,
		0.209482141084727828012999174891714,
	},
}

// apply integrates f over [a, b]. It returns the Kronrod estimate, its error
// estimate, the integral of |f| and the integral of |f - mean|.
func (r kronrodRule) apply(f func(float64) float64, a, b float64) (result, abserr, resabs, resasc float64) {
	n := len(r.xgk)
	fv1 := make([]float64, n)
	fv2 := make([]float64, n)

	centre := 0.5 * (a + b)
	halfLength := 0.5 * (b - a)
	absHalfLength := math.Abs(halfLength)
	fCentre := f(centre)

	resultGauss := 0.0
	resultKronrod := fCentre * r.wgk[n-1]
	resultAbs := math.Abs(resultKronrod)
	if n%2 == 0 {
		resultGauss = fCentre * r.wg[n/2-1]
	}

	for j := 0; j < (n-1)/2; j++ {
		jtw := 2*j + 1
		abscissa := halfLength * r.xgk[jtw]
		f1 := f(centre - abscissa)
		f2 := f(centre + abscissa)
		fv1[jtw] = f1
		fv2[jtw] = f2
		resultGauss += r.wg[j] * (f1 + f2)
		resultKronrod += r.wgk[jtw] * (f1 + f2)
		resultAbs += r.wgk[jtw] * (math.Abs(f1) + math.Abs(f2))
	}
	for j := 0; j < n/2; j++ {
		jtwm1 := 2 * j
		abscissa := halfLength * r.xgk[jtwm1]
		f1 := f(centre - abscissa)
		f2 := f(centre + abscissa)
		fv1[jtwm1] = f1
		fv2[jtwm1] = f2
		resultKronrod += r.wgk[jtwm1] * (f1 + f2)
		resultAbs += r.wgk[jtwm1] * (math.Abs(f1) + math.Abs(f2))
	}

	mean := 0.5 * resultKronrod
	resultAsc := r.wgk[n-1] * math.Abs(fCentre-mean)
	for j := 0; j < n-1; j++ {
		resultAsc += r.wgk[j] * (math.Abs(fv1[j]-mean) + math.Abs(fv2[j]-mean))
	}

	err := (resultKronrod - resultGauss) * halfLength
	resultKronrod *= halfLength
	resultAbs *= absHalfLength
	resultAsc *= absHalfLength

	return resultKronrod, rescaleError(err, resultAbs, resultAsc), resultAbs, resultAsc
}

func rescaleError(err, resultAbs, resultAsc float64) float64 {
	err = math.Abs(err)
	if resultAsc != 0 && err != 0 {
		scale := math.Pow(200*err/resultAsc, 1.5)
		if scale < 1 {
			err = resultAsc * scale
		} else {
			err = resultAsc
		}
	}
	if resultAbs > dblMin/(50*dblEpsilon) {
		if minErr := 50 * dblEpsilon * resultAbs; minErr > err {
			err = minErr
		}
	}
	return err
}
